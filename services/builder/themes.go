package builder

// defaultRedirectBase is the landing-page host used when no override is
// configured. Themed paths are served by the external redirect web server.
const defaultRedirectBase = "https://rick.becomeaninternetghost.com"

var themePaths = map[string]string{
	"rickroll":    "/direct",
	"corporate":   "/corporate",
	"login":       "/login",
	"maintenance": "/maintenance",
}

// redirectURLFor resolves a profile entry's theme tag to a landing-page URL.
// Unknown themes fall back to the direct page.
func (b *Builder) redirectURLFor(theme string) string {
	base := b.redirectBase
	if base == "" {
		base = defaultRedirectBase
	}
	if path, ok := themePaths[theme]; ok {
		return base + path
	}
	return base + "/direct"
}
