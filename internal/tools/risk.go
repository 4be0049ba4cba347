package tools

import "strings"

// RiskChecklist derives compliance risks from the declared compliance regimes
// and data classifications.
func RiskChecklist(compliance, dataTypes []string) []string {
	all := append(append([]string{}, compliance...), dataTypes...)

	var risks []string
	if anyFlag(all, "HIPAA", "PHI") {
		risks = append(risks, "PHI present: require HIPAA controls, BAA, access logging")
	}
	if anyFlag(all, "PCI", "CARD") {
		risks = append(risks, "PCI data: segment card data environment, tokenization, yearly SAQ")
	}
	if anyFlag(dataTypes, "PII") {
		risks = append(risks, "PII present: need data minimization, DSR workflows, encryption at rest")
	}
	if anyFlag(compliance, "GDPR") {
		risks = append(risks, "GDPR scope: data residency per region, lawful basis records, 72h breach notice")
	}
	if len(risks) == 0 {
		risks = append(risks, "Standard web-app risks: OWASP Top 10, SSRF, IDOR, rate limiting")
	}
	return risks
}

func anyFlag(flags []string, want ...string) bool {
	for _, f := range flags {
		up := strings.ToUpper(strings.TrimSpace(f))
		for _, w := range want {
			if up == w {
				return true
			}
		}
	}
	return false
}
