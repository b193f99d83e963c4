package disk

import "github.com/ozkant/bitswarm/metainfo"

// fileSpan is one file's absolute byte range in the linear torrent address
// space. step 1 of AddTorrent.
type fileSpan struct {
	path  string
	start int64
	end   int64 // exclusive
}

func buildLayout(info metainfo.Info) []fileSpan {
	spans := make([]fileSpan, len(info.Files))
	var offset int64
	for i, f := range info.Files {
		path := f.Path[len(f.Path)-1]
		if len(f.Path) > 1 {
			joined := ""
			for j, part := range f.Path {
				if j > 0 {
					joined += "/"
				}
				joined += part
			}
			path = joined
		}
		spans[i] = fileSpan{path: path, start: offset, end: offset + f.Length}
		offset += f.Length
	}
	return spans
}

// segment is the portion of one file a linear [start,end) range overlaps.
type segment struct {
	span       fileSpan
	fileOffset int64
	rangeStart int64 // offset within the caller's buffer
	length     int64
}

// splitRange decomposes a linear [start, end) byte range across the spans
// a multi-file torrent's files occupy, so writes/reads can be dispatched
// per-file.
func splitRange(spans []fileSpan, start, end int64) []segment {
	var out []segment
	for _, sp := range spans {
		overlapStart := max64(start, sp.start)
		overlapEnd := min64(end, sp.end)
		if overlapStart >= overlapEnd {
			continue
		}
		out = append(out, segment{
			span:       sp,
			fileOffset: overlapStart - sp.start,
			rangeStart: overlapStart - start,
			length:     overlapEnd - overlapStart,
		})
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
