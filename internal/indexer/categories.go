package indexer

import "sort"

// Universal category taxonomy shared by all indexers. Numbering follows the
// Newznab convention: each thousand block is a parent category and its
// subcategories live inside the block.
const (
	CategoryConsole = 1000
	CategoryMovies  = 2000
	CategoryAudio   = 3000
	CategoryPC      = 4000
	CategoryTV      = 5000
	CategoryXXX     = 6000
	CategoryBooks   = 7000
	CategoryOther   = 8000

	CategoryMoviesForeign = 2010
	CategoryMoviesOther   = 2020
	CategoryMoviesSD      = 2030
	CategoryMoviesHD      = 2040
	CategoryMoviesBluRay  = 2050
	CategoryMovies3D      = 2060
	CategoryMoviesDVD     = 2070
	CategoryMoviesWebDL   = 2080

	CategoryAudioMP3      = 3010
	CategoryAudioLossless = 3040
	CategoryAudioOther    = 3050

	CategoryPCGames = 4050
	CategoryPCISO   = 4020

	CategoryTVForeign = 5010
	CategoryTVOther   = 5020
	CategoryTVSD      = 5030
	CategoryTVHD      = 5040
	CategoryTVSport   = 5060
	CategoryTVAnime   = 5070
	CategoryTVDoc     = 5080
	CategoryTVWebDL   = 5090

	CategoryBooksEbook = 7020
	CategoryBooksComic = 7030
)

var categoryNames = map[int]string{
	CategoryConsole:       "Console",
	CategoryMovies:        "Movies",
	CategoryMoviesForeign: "Movies/Foreign",
	CategoryMoviesOther:   "Movies/Other",
	CategoryMoviesSD:      "Movies/SD",
	CategoryMoviesHD:      "Movies/HD",
	CategoryMoviesBluRay:  "Movies/BluRay",
	CategoryMovies3D:      "Movies/3D",
	CategoryMoviesDVD:     "Movies/DVD",
	CategoryMoviesWebDL:   "Movies/WEB-DL",
	CategoryAudio:         "Audio",
	CategoryAudioMP3:      "Audio/MP3",
	CategoryAudioLossless: "Audio/Lossless",
	CategoryAudioOther:    "Audio/Other",
	CategoryPC:            "PC",
	CategoryPCISO:         "PC/ISO",
	CategoryPCGames:       "PC/Games",
	CategoryTV:            "TV",
	CategoryTVForeign:     "TV/Foreign",
	CategoryTVOther:       "TV/Other",
	CategoryTVSD:          "TV/SD",
	CategoryTVHD:          "TV/HD",
	CategoryTVSport:       "TV/Sport",
	CategoryTVAnime:       "TV/Anime",
	CategoryTVDoc:         "TV/Documentary",
	CategoryTVWebDL:       "TV/WEB-DL",
	CategoryXXX:           "XXX",
	CategoryBooks:         "Books",
	CategoryBooksEbook:    "Books/Ebook",
	CategoryBooksComic:    "Books/Comic",
	CategoryOther:         "Other",
}

// CategoryName returns a human-readable name for a universal category.
func CategoryName(id int) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return "Unknown"
}

// ParentCategory returns the parent of a universal category. Parents are
// their own parent.
func ParentCategory(id int) int {
	return id / 1000 * 1000
}

// Subcategories returns the known subcategories of a parent category in
// ascending order, excluding the parent itself. A non-parent has none.
func Subcategories(parent int) []int {
	if parent%1000 != 0 {
		return nil
	}
	var subs []int
	for id := range categoryNames {
		if id != parent && ParentCategory(id) == parent {
			subs = append(subs, id)
		}
	}
	sort.Ints(subs)
	return subs
}

// ExpandCategories returns the input set widened with the subcategories of
// every parent category present, deduplicated and in ascending order.
func ExpandCategories(cats []int) []int {
	if len(cats) == 0 {
		return cats
	}
	seen := make(map[int]bool, len(cats))
	for _, c := range cats {
		seen[c] = true
		for _, sub := range Subcategories(c) {
			seen[sub] = true
		}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// CategoryMap is one indexer's mapping between the site's native numeric
// categories and the universal taxonomy. The relation is many-to-many and
// lookups work in both directions.
type CategoryMap struct {
	toUniversal map[int][]int
	toNative    map[int][]int
	universal   []int
}

// NewCategoryMap returns an empty mapping.
func NewCategoryMap() *CategoryMap {
	return &CategoryMap{
		toUniversal: make(map[int][]int),
		toNative:    make(map[int][]int),
	}
}

// Add records that the native site category maps onto the universal category.
func (m *CategoryMap) Add(native, universal int) {
	for _, u := range m.toUniversal[native] {
		if u == universal {
			return
		}
	}
	m.toUniversal[native] = append(m.toUniversal[native], universal)
	m.toNative[universal] = append(m.toNative[universal], native)

	for _, u := range m.universal {
		if u == universal {
			return
		}
	}
	m.universal = append(m.universal, universal)
	sort.Ints(m.universal)
}

// Universal returns the universal categories a native category maps to.
// The second return is false when the native category has no mapping; such
// rows are dropped by the indexer, not defaulted.
func (m *CategoryMap) Universal(native int) ([]int, bool) {
	u, ok := m.toUniversal[native]
	return u, ok
}

// Resolve returns the primary universal category for a native category.
func (m *CategoryMap) Resolve(native int) (int, bool) {
	u, ok := m.toUniversal[native]
	if !ok || len(u) == 0 {
		return 0, false
	}
	return u[0], true
}

// Native returns the native categories behind a universal category.
func (m *CategoryMap) Native(universal int) []int {
	return m.toNative[universal]
}

// Supports reports whether the indexer maps anything onto the given
// universal category.
func (m *CategoryMap) Supports(universal int) bool {
	_, ok := m.toNative[universal]
	return ok
}

// UniversalIDs returns the distinct universal categories the indexer serves,
// in ascending order.
func (m *CategoryMap) UniversalIDs() []int {
	return m.universal
}
