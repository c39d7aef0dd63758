// Package storage serves release artifacts from a filesystem or an S3 bucket.
//
// Both backends implement license.ArtifactStore. Keys are release file keys
// as stored on the release record; a missing object is reported as
// license.ErrArtifactNotFound so the pipeline can tell it apart from
// transport failures.
package storage
