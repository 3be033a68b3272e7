// Package panel serves the browser status page for upsd.
//
// The page is a single HTML file embedded in the binary. It lists the
// devices from /api/v1/devices and follows /api/v1/ws for live updates,
// so it needs no build step and no assets beyond what upsd already serves.
//
// Setting api.panel_dir serves the page from disk instead, which lets the
// page be edited without rebuilding upsd.
package panel
