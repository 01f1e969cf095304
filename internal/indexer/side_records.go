package indexer

import "github.com/fyrsmithlabs/embedlife/internal/vectorstore"

// sideRecordFields lists the metadata keys copied into side records per
// content type.
var sideRecordFields = map[vectorstore.ContentType][]string{
	vectorstore.ContentTypeProduct:       {"sku", "price", "brand", "category", "rating"},
	vectorstore.ContentTypeCustomer:      {"email", "segment", "lifetime_value"},
	vectorstore.ContentTypeKnowledgeBase: {"category", "tags", "difficulty"},
	vectorstore.ContentTypeFAQ:           {"category", "tags", "difficulty"},
}

// sideRecord builds the typed record for content types that carry one.
// Returns nil when the type has none or no recognized key is present.
func sideRecord(documentID string, ct vectorstore.ContentType, md vectorstore.Metadata) *vectorstore.SideRecord {
	keys, ok := sideRecordFields[ct]
	if !ok || len(md) == 0 {
		return nil
	}

	fields := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := md[k]; ok {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &vectorstore.SideRecord{DocumentID: documentID, ContentType: ct, Fields: fields}
}
