package introspect

// fingerprintScript runs inside the client's renderer. It locates the
// bundler module exposing the header getters and returns a JSON string:
// {"base64": ..., "decoded": {...}} on success or {"error": ...}.
const fingerprintScript = `
(() => {
    try {
        let wpRequire = webpackChunkdiscord_app.push([[Symbol()], {}, r => r]);
        webpackChunkdiscord_app.pop();

        let mod = null;
        for (const m of Object.values(wpRequire.c)) {
            try {
                const exp = m?.exports?.default;
                if (exp && typeof exp.getSuperPropertiesBase64 === 'function' && typeof exp.getSuperProperties === 'function') {
                    const encoded = exp.getSuperPropertiesBase64();
                    if (typeof encoded === 'string' && encoded.length > 50) {
                        mod = m;
                        break;
                    }
                }
            } catch (e) {
                continue;
            }
        }

        if (!mod) return JSON.stringify({ error: "properties module not found" });

        const base64 = mod.exports.default.getSuperPropertiesBase64();
        const decoded = mod.exports.default.getSuperProperties();

        if (typeof base64 !== 'string') {
            return JSON.stringify({ error: "getSuperPropertiesBase64 did not return a string" });
        }
        if (!decoded || typeof decoded !== 'object' || !decoded.client_build_number) {
            return JSON.stringify({ error: "getSuperProperties did not return a valid object" });
        }

        return JSON.stringify({ base64, decoded });
    } catch (e) {
        return JSON.stringify({ error: e.toString() });
    }
})()
`
