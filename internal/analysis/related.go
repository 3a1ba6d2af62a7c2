package analysis

import (
	"sort"
	"time"

	"bitbucket.org/creachadair/stringset"

	"mdforge/internal/address"
	"mdforge/internal/doccache"
)

// fingerprintOverlapThreshold is the minimum keyword intersection size
// for the stage-1 fingerprint prefilter to admit a candidate on keyword
// grounds alone (namespace match always admits).
const fingerprintOverlapThreshold = 1

const maxRelatedResults = 5

// RelatedDocument is one entry of FindRelatedDocuments's output.
type RelatedDocument struct {
	Path      string
	Title     string
	Relevance RelevanceResult
}

// FindRelatedDocuments implements the two-stage related-doc filter
// (spec.md §4.7): a cheap fingerprint prefilter narrows candidates
// before the (comparatively expensive) full multi-factor scoring runs,
// falling back to scoring every document if the prefilter admits none.
func FindRelatedDocuments(cache *doccache.Cache, resolver *address.Resolver, source *doccache.CachedDocument, now time.Time) []RelatedDocument {
	fps := cache.ListDocumentFingerprints()

	filtered := prefilterByFingerprint(source, fps)
	if len(filtered) == 0 {
		filtered = fps
	}

	sourceProfile := Profile{
		Path:      source.Metadata.Path,
		Title:     source.Metadata.Title,
		Namespace: source.Metadata.Namespace,
		Keywords:  source.Metadata.Keywords,
	}

	type scored struct {
		doc   RelatedDocument
		total float64
	}
	out := make([]scored, 0, len(filtered))
	for _, fp := range filtered {
		if fp.Path == source.Metadata.Path {
			continue
		}
		physical := resolver.Resolve(fp.Path)
		target, err := cache.GetDocument(fp.Path, physical)
		if err != nil {
			continue
		}

		targetProfile := Profile{
			Path:         target.Metadata.Path,
			Title:        target.Metadata.Title,
			Namespace:    target.Metadata.Namespace,
			Keywords:     target.Metadata.Keywords,
			LastModified: target.Metadata.LastModified,
		}
		rel := ComputeRelevance(sourceProfile, targetProfile, now)
		out = append(out, scored{
			doc:   RelatedDocument{Path: fp.Path, Title: target.Metadata.Title, Relevance: rel},
			total: rel.Total,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].total > out[j].total })
	if len(out) > maxRelatedResults {
		out = out[:maxRelatedResults]
	}

	result := make([]RelatedDocument, len(out))
	for i, s := range out {
		result[i] = s.doc
	}
	return result
}

func prefilterByFingerprint(source *doccache.CachedDocument, fps []doccache.Fingerprint) []doccache.Fingerprint {
	sourceKw := stringset.New(source.Metadata.Keywords...)
	out := make([]doccache.Fingerprint, 0, len(fps))
	for _, fp := range fps {
		if fp.Path == source.Metadata.Path {
			continue
		}
		if fp.Namespace == source.Metadata.Namespace {
			out = append(out, fp)
			continue
		}
		targetKw := stringset.New(fp.Keywords...)
		if sourceKw.Len() > 0 && targetKw.Len() > 0 && sourceKw.Intersect(targetKw).Len() >= fingerprintOverlapThreshold {
			out = append(out, fp)
		}
	}
	return out
}
