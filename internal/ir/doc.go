// Package ir provides the RDF value model and binding algebra shared by every
// other sparqlflow package.
//
// This package contains value types only. All other internal packages import
// ir; ir imports nothing internal. This keeps ir the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Term, Delta are sealed interfaces (marker methods); consumers switch on
//     them exhaustively
//   - Terms are comparable with == and usable as map keys
//   - Mappings are immutable once built; Merge returns a new Mapping
//   - Canonical JSON (NFC-normalized, sorted keys) is the only encoding used
//     for content-addressed identity (QuadID, MappingHash, Mapping.Key)
package ir
