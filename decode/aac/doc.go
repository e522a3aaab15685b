// Package aac provides a decode.Source for AAC audio in an M4A/MP4
// container, via Apple CoreAudio's ExtAudioFile (macOS only).
//
// This package requires the "with_aac" build tag and CGO_ENABLED=1 on
// macOS. Without the build tag, Open returns ErrNotSupported. Using the
// build tag on a non-macOS platform is a compile error, matching the
// rest of this module's policy of failing a CoreAudio-only feature at
// build time rather than silently degrading at runtime.
//
// ExtAudioFile has no per-packet pull API the way FLAC or MP3 decoders
// do; it decodes in bulk via ExtAudioFileRead. Source therefore decodes
// the whole track eagerly in Open, the same documented exception Vorbis
// takes, and serves it back in fixed packets from memory.
package aac
