// Package mailbox serializes work per agent. Each agent ID owns one
// lane that executes tasks strictly in arrival order, which is what
// makes append-and-evict memory mutation safe without a lock around
// the whole agent. Lanes for different agents run concurrently.
package mailbox
