package domain

// Violation 结构化的风控违规：携带规则名、观测值与限制值，
// 调用方可按 Rule 分支处理，而不是解析字符串。
type Violation struct {
	Rule         string  `json:"rule"`
	Message      string  `json:"message"`
	CurrentValue float64 `json:"current_value"`
	LimitValue   float64 `json:"limit_value"`
}

// Warning 非阻断性告警（如仓位接近上限、delta 缺失）
type Warning struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// PolicyDecision 每次评估新鲜产出，从不缓存。
type PolicyDecision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
	Warnings   []Warning   `json:"warnings"`
}

// Deny 追加一条违规并置为拒绝
func (d *PolicyDecision) Deny(v Violation) {
	d.Allowed = false
	d.Violations = append(d.Violations, v)
}

// Warn 追加一条告警（不影响 Allowed）
func (d *PolicyDecision) Warn(w Warning) {
	d.Warnings = append(d.Warnings, w)
}

// HasViolation 检查是否包含指定规则的违规
func (d *PolicyDecision) HasViolation(rule string) bool {
	for _, v := range d.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}
