package tracking

// RetryPolicy 撤单后重新下单的次数预算，买卖共用
type RetryPolicy struct {
	Enabled  bool `json:"enabled"`
	Limit    int  `json:"limit"`
	Attempts int  `json:"-"`
}

// Allow 预算内可以再提交一次
func (r *RetryPolicy) Allow() bool {
	return r.Enabled && r.Attempts < r.Limit
}

// Consume 记一次重提
func (r *RetryPolicy) Consume() {
	r.Attempts++
}

// Exhausted 预算已用完
func (r *RetryPolicy) Exhausted() bool {
	return !r.Allow()
}

// Reset 终态成功后清零
func (r *RetryPolicy) Reset() {
	r.Attempts = 0
}
