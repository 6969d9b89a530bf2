package fusion

// Remap rewrites raw class ids to semantic ids in place using the lookup
// table. Any id outside the table's domain resolves to the background id,
// never to an index fault. An empty table leaves the raw ids untouched.
func Remap(labels []uint8, table []int, background uint8) {
	if len(table) == 0 {
		return
	}
	for i, v := range labels {
		if int(v) < len(table) {
			labels[i] = uint8(table[int(v)])
		} else {
			labels[i] = background
		}
	}
}
