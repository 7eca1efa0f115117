package retrieval

// ExpandResults flattens reranked chunks into page-level passages. For a
// chunk covering several pages, each (file, page) pair becomes one passage
// and collisions keep the passage with the higher score; first-seen order
// is preserved so the prompt reads in rerank order. Chunks without page
// data are appended after the paged passages. When nothing at all carries
// page data the raw chunk contents are used as-is.
func ExpandResults(chunks []Chunk) []Result {
	type pageKey struct {
		fileName string
		page     int
	}

	byPage := make(map[pageKey]int)
	var paged []Result
	var others []Result

	for _, chunk := range chunks {
		if len(chunk.PageNumbers) > 0 && len(chunk.OriginContent) > 0 {
			n := len(chunk.OriginContent)
			if len(chunk.PageNumbers) < n {
				n = len(chunk.PageNumbers)
			}
			for i := 0; i < n; i++ {
				page := chunk.PageNumbers[i]
				entry := Result{
					SearchContent:  chunk.Content,
					OriginContent:  chunk.OriginContent[i],
					Score:          chunk.Score,
					Source:         chunk.FileName,
					FileName:       chunk.FileName,
					KBName:         chunk.KBName,
					PageNumber:     &page,
					CustomMetadata: chunk.CustomMetadata,
				}
				key := pageKey{chunk.FileName, page}
				if at, seen := byPage[key]; seen {
					if entry.Score > paged[at].Score {
						paged[at] = entry
					}
					continue
				}
				byPage[key] = len(paged)
				paged = append(paged, entry)
			}
			continue
		}

		others = append(others, Result{
			SearchContent:  chunk.Content,
			OriginContent:  chunk.Content,
			Score:          chunk.Score,
			Source:         chunk.FileName,
			FileName:       chunk.FileName,
			KBName:         chunk.KBName,
			CustomMetadata: chunk.CustomMetadata,
		})
	}

	return append(paged, others...)
}
