// Package delivery pushes notifications to agents. HTTPDeliverer posts to an
// agent's webhook endpoint, RedisDeliverer publishes on a per-agent Redis
// channel, and MultiDeliverer picks between them for each agent.
package delivery
