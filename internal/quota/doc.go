// Package quota implements admission control for agents against upstream
// model providers.
//
// Each provider carries a daily token pool and a concurrent-agent
// ceiling. Admission carves a conservative allocation out of the
// remaining pool (half of the smaller of the estimate and the remainder)
// so no single agent can drain a provider. Agents report usage while
// they run; release returns the unused remainder to the pool. A TTL
// sweep reclaims quotas whose holders never released them.
package quota
