package guardrail

// Soften rewrites assertive phrasing into assistive phrasing, for example
// "Patient has sepsis" into "clinical features suggest possible sepsis".
// It is best effort and does not make text safe; always run Check on the
// result before display.
func Soften(text string) string {
	out := text
	for _, r := range softenRules {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	return out
}
