package browser

import (
	"encoding/json"
	"strings"

	"github.com/go-rod/stealth"
)

// StealthScripts returns the scripts evaluated before any page script on every new document.
// The go-rod/stealth evasions come first so the fingerprint values from opts win.
func StealthScripts(opts Options) []string {
	var scripts []string
	if opts.Stealth {
		scripts = append(scripts, stealth.JS)
	}
	if overrides := fingerprintOverrides(opts); overrides != "" {
		scripts = append(scripts, overrides)
	}
	return scripts
}

// fingerprintOverrides pins the navigator values from opts
func fingerprintOverrides(opts Options) string {
	props := map[string]interface{}{}
	if len(opts.Languages) > 0 {
		props["languages"] = opts.Languages
	}
	if opts.Vendor != "" {
		props["vendor"] = opts.Vendor
	}
	if opts.Platform != "" {
		props["platform"] = opts.Platform
	}
	if len(props) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString("  const props = " + jsValue(props) + ";\n")
	b.WriteString("  for (const [name, value] of Object.entries(props)) {\n")
	b.WriteString("    try { Object.defineProperty(navigator, name, { get: () => value, configurable: true }); } catch (e) {}\n")
	b.WriteString("  }\n")
	b.WriteString("})();\n")
	return b.String()
}

// jsValue renders v as a JavaScript literal
func jsValue(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(data)
}
