package job

// Authorized reports whether identity owns series.
// The comparison is exact and case-sensitive. An empty identity is never authorized.
func Authorized(identity string, s *Series) bool {
	return identity != "" && s != nil && identity == s.Owner
}
