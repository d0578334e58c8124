// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with completion providers inside RouteMesh.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool definitions and tool choice (auto, required, named)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate scripted mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement the Model interface from
// this package so the router and workflows remain decoupled from vendor SDKs.
// Most callers use Complete, which drains the channels and returns the final
// AI message.
package model
