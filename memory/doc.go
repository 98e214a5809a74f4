// Package memory defines the tiered memory engine's shared contracts.
//
// The engine keeps three lifetimes of recall for a conversational assistant:
//   - Working memory: per session key/value scratchpad, volatile, 700 words
//   - Episodic memory: one structured record per conversation, 500 words,
//     compressed into a narrative as it grows
//   - Long-term memory: one curated profile per user, ten categories with
//     an independent 350 word budget each
//
// This package only holds what every tier shares: the collaborator
// interfaces the engine consumes (DocumentStore, VectorIndex, Embedder,
// TextService), the Config with every budget and threshold, and the error
// taxonomy. Tier logic lives in the sub-packages:
//   - budget, rules, scoring, classify: pure, deterministic building blocks
//   - working, episodic, longterm: the stores
//   - narrative: event extraction and narrative folding
//   - vector, embedder/*, store/*, textsvc: collaborator implementations
//
// Every network-backed collaborator has a deterministic local counterpart
// that is used in tests and as the fallback on failure.
package memory
