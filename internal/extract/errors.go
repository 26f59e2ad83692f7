package extract

import "errors"

// ErrMaintenance reports a page that lacks the structure of a live listing
// or world overview, which is how the site presents maintenance windows.
var ErrMaintenance = errors.New("community site is in maintenance")
