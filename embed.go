package pubfront

import "embed"

// EmbeddedAssets contains the static assets served under /public/ and
// copied by the static export: logo.svg, styles.css.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
