package redisq

// Key layout, all under {prefix}:{queue}:
//
//	wait        list   ids ready to run, consumed from the right
//	active      list   ids claimed by a worker
//	delayed     zset   ids waiting out a retry backoff, score = ready-at ms
//	completed   list   newest first, trimmed to the retention count
//	failed      list   newest first, trimmed to the retention count
//	job:{id}    hash   job document
//	lock:{id}   string claim token, expires after the lock TTL
type keys struct {
	base string
}

func newKeys(prefix, queue string) keys {
	return keys{base: prefix + ":" + queue + ":"}
}

func (k keys) wait() string          { return k.base + "wait" }
func (k keys) active() string        { return k.base + "active" }
func (k keys) delayed() string       { return k.base + "delayed" }
func (k keys) completed() string     { return k.base + "completed" }
func (k keys) failed() string        { return k.base + "failed" }
func (k keys) jobPrefix() string     { return k.base + "job:" }
func (k keys) lockPrefix() string    { return k.base + "lock:" }
func (k keys) job(id string) string  { return k.jobPrefix() + id }
func (k keys) lock(id string) string { return k.lockPrefix() + id }
