package payment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	metaLearnerID = "learner_id"
	metaItems     = "items"
	metaPurpose   = "purpose"

	purposeEnrollment = "enrollment"

	// provider limits on the metadata of a session
	maxMetadataKeys  = 50
	maxMetadataValue = 500
)

var ErrInvalidMetadata = errors.New("invalid session metadata")

// MetadataItem is a purchased item reference as carried by the session metadata.
type MetadataItem struct {
	ItemID   string
	Quantity int
}

// Metadata is the recovery bundle attached to every checkout session.
type Metadata struct {
	LearnerID string
	Items     []MetadataItem
}

// Encode flattens the metadata into the provider key/value format.
// Items are encoded as "id:qty,id:qty" under "items", spilling over to "items_1", "items_2"...
// whenever a value would exceed the provider limit.
func (m Metadata) Encode() (map[string]string, error) {
	if m.LearnerID == "" || len(m.Items) == 0 {
		return nil, errors.Wrap(ErrInvalidMetadata, "learner and items are required")
	}
	raw := map[string]string{
		metaPurpose:   purposeEnrollment,
		metaLearnerID: m.LearnerID,
	}

	var chunk strings.Builder
	chunks := 0
	flush := func() {
		raw[itemsKey(chunks)] = chunk.String()
		chunks++
		chunk.Reset()
	}
	for _, it := range m.Items {
		if it.ItemID == "" || strings.ContainsAny(it.ItemID, ":,") || it.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidMetadata, "item %q x%d", it.ItemID, it.Quantity)
		}
		part := it.ItemID + ":" + strconv.Itoa(it.Quantity)
		if len(part) > maxMetadataValue {
			return nil, errors.Wrapf(ErrInvalidMetadata, "item %q is too long", it.ItemID)
		}
		if chunk.Len() > 0 && chunk.Len()+1+len(part) > maxMetadataValue {
			flush()
		}
		if chunk.Len() > 0 {
			chunk.WriteByte(',')
		}
		chunk.WriteString(part)
	}
	flush()

	if len(raw) > maxMetadataKeys {
		return nil, errors.Wrapf(ErrInvalidMetadata, "%d items do not fit in the session metadata", len(m.Items))
	}
	return raw, nil
}

func itemsKey(chunk int) string {
	if chunk == 0 {
		return metaItems
	}
	return fmt.Sprintf("%s_%d", metaItems, chunk)
}

// IsPlatformSession tells whether the session metadata was written by Metadata.Encode.
func IsPlatformSession(raw map[string]string) bool {
	return raw[metaPurpose] == purposeEnrollment
}

// ParseMetadata reads back a bundle written by Metadata.Encode.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	if !IsPlatformSession(raw) {
		return Metadata{}, errors.Wrap(ErrInvalidMetadata, "not an enrollment session")
	}
	m := Metadata{LearnerID: raw[metaLearnerID]}
	if m.LearnerID == "" {
		return Metadata{}, errors.Wrap(ErrInvalidMetadata, "missing learner")
	}
	if raw[metaItems] == "" {
		return Metadata{}, errors.Wrap(ErrInvalidMetadata, "missing items")
	}
	var parts []string
	for i := 0; ; i++ {
		v, ok := raw[itemsKey(i)]
		if !ok {
			break
		}
		parts = append(parts, strings.Split(v, ",")...)
	}
	for _, part := range parts {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 || kv[0] == "" {
			return Metadata{}, errors.Wrapf(ErrInvalidMetadata, "malformed item %q", part)
		}
		qty, err := strconv.Atoi(kv[1])
		if err != nil || qty <= 0 {
			return Metadata{}, errors.Wrapf(ErrInvalidMetadata, "malformed quantity %q", part)
		}
		m.Items = append(m.Items, MetadataItem{ItemID: kv[0], Quantity: qty})
	}
	return m, nil
}
