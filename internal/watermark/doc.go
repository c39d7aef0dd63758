// Package watermark is the HTTP client for the external watermarking
// service.
//
// The service receives the artifact as a multipart upload on
// POST /watermark/embed and answers with the rewritten bytes. Embedding
// methods and densities travel as X-Watermark-* headers together with the
// per-license tag and the team token.
package watermark
