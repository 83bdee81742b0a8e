package browser

import (
	"regexp"
	"strings"
)

// BotDetector detects bot walls and CAPTCHAs served in place of results
type BotDetector struct {
	patterns []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bcaptcha\b`),
			regexp.MustCompile(`(?i)recaptcha`),
			regexp.MustCompile(`(?i)hcaptcha`),
			regexp.MustCompile(`(?i)turnstile`),
			regexp.MustCompile(`(?i)verify you are (a )?human`),
			regexp.MustCompile(`(?i)are you a (human|robot)`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)unusual traffic`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)bot detected`),
			// kayak interstitials
			regexp.MustCompile(`(?i)/security/check`),
			regexp.MustCompile(`(?i)eres un robot`),
			regexp.MustCompile(`(?i)verificar que eres humano`),
		},
	}
}

// Detect reports whether the page looks like a bot wall, with the matched text
func (bd *BotDetector) Detect(title, html string) (bool, string) {
	content := title + "\n" + stripScripts(html)
	for _, pattern := range bd.patterns {
		if match := pattern.FindString(content); match != "" {
			return true, match
		}
	}
	return false, ""
}

var scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script>`)

// stripScripts drops inline scripts, which routinely mention captcha vendors on normal pages
func stripScripts(html string) string {
	if !strings.Contains(html, "<script") {
		return html
	}
	return scriptBlock.ReplaceAllString(html, "")
}
