package export

// The service's control markup varies by release, so every "find the
// control for action X" step is an ordered list of equivalent locators
// tried in turn: stable automation identifiers first, accessible labels
// next, visible text last. Exhausting a chain is ErrUINotFound.

// locator is one way of finding a control. When re is empty the css
// selector alone must match; otherwise the element's text must also
// match the regular expression (Rod's ElementR semantics).
type locator struct {
	css string
	re  string
}

// actionsMenuChain finds the page's contextual "more actions" control.
var actionsMenuChain = []locator{
	{css: `[data-testid="page-more-actions-button"]`},
	{css: `button[aria-label="More actions"]`},
	{css: `#action-menu-link`},
	{css: `button`, re: `More actions`},
}

// exportSubmenuChain finds the "Export" entry inside the actions menu.
var exportSubmenuChain = []locator{
	{css: `[data-testid="export-menu-item"]`},
	{css: `a[aria-label="Export"]`},
	{css: `#action-export-link`},
	{css: `a, button, span[role="menuitem"]`, re: `^Export$`},
}

// pdfActionChain finds the "Export to PDF" action.
var pdfActionChain = []locator{
	{css: `[data-testid="export-pdf-menu-item"]`},
	{css: `#action-export-pdf-link`},
	{css: `a[href*="pdfpageexport.action"]`},
	{css: `a, button, span[role="menuitem"]`, re: `Export to PDF|PDF Export`},
}

// downloadReadyChain finds the signal that generation finished: either a
// dedicated "download ready" link or the confirmation action of a modal
// that starts the download when clicked.
var downloadReadyChain = []locator{
	{css: `[data-testid="download-ready-link"]`},
	{css: `.space-export-download-path a`},
	{css: `a[href*="/download/"]`, re: `\.pdf|Download`},
	{css: `a`, re: `Download here|Download PDF`},
	{css: `button`, re: `^Download$|^Export$`},
}
