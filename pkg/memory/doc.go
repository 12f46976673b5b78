// Package memory holds an agent's conversational state: a bounded
// short-term turn buffer, an append-only set of learned skills, and a
// pluggable long-term store queried for fragments relevant to the
// current message.
package memory
