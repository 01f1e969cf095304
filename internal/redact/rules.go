package redact

// DefaultRules returns the built-in detection rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "payment-card",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Validate:    luhnValid,
		},
		{
			ID:          "aws-access-key",
			Description: "AWS access key id",
			Pattern:     `\b(?:AKIA|ASIA|AGPA|AIDA|AROA)[0-9A-Z]{16}\b`,
			Keywords:    []string{"AKIA", "ASIA", "AGPA", "AIDA", "AROA"},
		},
		{
			ID:          "stripe-key",
			Description: "Stripe secret or restricted key",
			Pattern:     `\b(?:sk|rk)_(?:live|test)_[0-9a-zA-Z]{16,}\b`,
			Keywords:    []string{"sk_live", "sk_test", "rk_live", "rk_test"},
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `\b(?:gh[pousr]_[0-9a-zA-Z]{36}|github_pat_[0-9a-zA-Z_]{22,})\b`,
			Keywords:    []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"},
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `\bxox[baprs]-[0-9a-zA-Z-]{10,}\b`,
			Keywords:    []string{"xoxb-", "xoxa-", "xoxp-", "xoxr-", "xoxs-"},
		},
		{
			ID:          "private-key",
			Description: "PEM private key block",
			Pattern:     `-----BEGIN[ A-Z]*PRIVATE KEY-----[\s\S]*?-----END[ A-Z]*PRIVATE KEY-----`,
			Keywords:    []string{"PRIVATE KEY"},
		},
		{
			ID:          "jwt",
			Description: "JSON web token",
			Pattern:     `\beyJ[0-9a-zA-Z_-]{8,}\.eyJ[0-9a-zA-Z_-]{8,}\.[0-9a-zA-Z_-]{8,}\b`,
			Keywords:    []string{"eyJ"},
		},
		{
			ID:          "connection-string",
			Description: "Database URL with embedded password",
			Pattern:     `\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:\s/]+:[^@\s]+@[^\s]+`,
			Keywords:    []string{"://"},
		},
		{
			ID:          "bearer-token",
			Description: "Authorization bearer token",
			Pattern:     `(?i)\bbearer\s+[0-9a-zA-Z._~+/-]{20,}=*`,
			Keywords:    []string{"bearer"},
		},
		{
			ID:          "generic-secret",
			Description: "Password or secret assignment",
			Pattern:     `(?i)\b(?:password|passwd|secret|api[_-]?key|access[_-]?token)\s*[:=]\s*["']?[^\s"']{8,}["']?`,
			Keywords:    []string{"password", "passwd", "secret", "api_key", "api-key", "apikey", "access_token", "access-token"},
		},
	}
}

// luhnValid reports whether the digits in s pass the Luhn checksum.
// Separators are ignored.
func luhnValid(s string) bool {
	var (
		sum    int
		digits int
		double bool
	)
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		digits++
		double = !double
	}
	return digits >= 13 && digits <= 19 && sum%10 == 0
}
