package api

import "time"

// Envelope is the JSON body returned by both endpoints for verdicts.
// Data is always null on these routes.
type Envelope struct {
	Data   any    `json:"data"`
	Result Result `json:"result"`
}

// Result carries the verdict
type Result struct {
	Timestamp         time.Time `json:"timestamp"`
	Valid             bool      `json:"valid"`
	Details           string    `json:"details"`
	Code              string    `json:"code"`
	ChallengeResponse *string   `json:"challengeResponse,omitempty"`
}

// Download response headers
const (
	HeaderFileSize         = "X-File-Size"
	HeaderEncodedSize      = "X-Encoded-Size"
	HeaderChunkSize        = "X-Chunk-Size"
	HeaderProductName      = "X-Product-Name"
	HeaderReleaseVersion   = "X-Release-Version"
	HeaderReleaseStatus    = "X-Release-Status"
	HeaderReleaseCreatedAt = "X-Release-Created-At"
	HeaderReleaseUpdatedAt = "X-Release-Updated-At"
	HeaderLatestVersion    = "X-Latest-Version"
	HeaderMainClassName    = "X-Main-Class-Name"
	HeaderStreamFormat     = "X-Stream-Format"
)
