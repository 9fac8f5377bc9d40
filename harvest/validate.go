package harvest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/sessionharness/logging"
)

// Account is a credential the backend accepted.
type Account struct {
	ID         string
	Username   string
	Credential string
}

// Validator checks one credential against the backend.
type Validator interface {
	Validate(ctx context.Context, credential string) (Account, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, credential string) (Account, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, credential string) (Account, error) {
	return f(ctx, credential)
}

// Validate checks credentials one at a time, in order, and returns the
// accounts that validated. When none do it returns the last validation error.
func Validate(ctx context.Context, v Validator, creds []string, logger zerolog.Logger) ([]Account, error) {
	if len(creds) == 0 {
		return nil, &NoCredentialsError{}
	}

	var accounts []Account
	var last error
	for _, cred := range creds {
		if err := ctx.Err(); err != nil {
			return accounts, err
		}
		acct, err := v.Validate(ctx, cred)
		if err != nil {
			logger.Warn().Str("credential", logging.RedactToken(cred)).Err(err).Msg("Credential rejected")
			last = err
			continue
		}
		acct.Credential = cred
		logger.Info().Str("account", logging.RedactID(acct.ID)).Msg("Credential validated")
		accounts = append(accounts, acct)
	}

	if len(accounts) == 0 {
		return nil, last
	}
	return accounts, nil
}
