// Package dashboard provides the embedded web UI for watching pdfxl runs.
//
// The page subscribes to the server's /api/sse stream and draws each run's
// upload progress, processing counts and download controls in the
// configured presentation style.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
//	assets/
//	  index.html    - run list with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
