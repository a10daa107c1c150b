package image

import (
	"net/url"
	"strconv"

	"codeberg.org/snonux/virtualtourist/internal/geo"
)

const (
	flickrAPIURL         = "https://api.flickr.com/services/rest/"
	flickrSearchMethod   = "flickr.photos.search"
	flickrExtras         = "url_m"
	flickrFormat         = "json"
	flickrNoJSONCallback = "1"

	// DefaultPerPage is the page size of the photo grid
	DefaultPerPage = 36

	// DefaultUpperPageLimit caps random page selection: a bbox search never
	// returns more than 4000 distinct photos, 112 pages of 36.
	DefaultUpperPageLimit = 112
)

// BuildQuery builds the search request parameters for loc. A page of 0 omits
// the page parameter, which is how the page discovery request is sent.
func BuildQuery(opts *SearchOptions, loc geo.Location, page int) url.Values {
	box := geo.ComputeBoundingBox(loc, opts.HalfWidth, opts.HalfHeight)

	params := url.Values{}
	params.Set("method", opts.Method)
	params.Set("api_key", opts.APIKey)
	params.Set("bbox", box.String())
	params.Set("safe_search", opts.SafeSearch)
	params.Set("extras", flickrExtras)
	params.Set("format", flickrFormat)
	params.Set("nojsoncallback", flickrNoJSONCallback)

	if opts.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Accuracy > 0 {
		params.Set("accuracy", strconv.Itoa(opts.Accuracy))
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}

	return params
}

// SelectPage picks the page to fetch uniformly from [1, min(totalPages, upperLimit)].
// intn must behave like rand.Intn. A non-positive upperLimit disables the cap.
func SelectPage(totalPages, upperLimit int, intn func(n int) int) int {
	limit := totalPages
	if upperLimit > 0 && upperLimit < limit {
		limit = upperLimit
	}
	if limit <= 1 {
		return 1
	}
	return 1 + intn(limit)
}
