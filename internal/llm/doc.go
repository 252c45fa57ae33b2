// Package llm provides a generic "send a prompt, get text back"
// abstraction over interchangeable language-model backends. It knows
// nothing about expenses; pipeline logic lives elsewhere.
package llm
