package elasticsearch

// DefaultIndexName is the index used for product documents.
const DefaultIndexName = "storefront_products"

// indexMapping is the settings and mapping for the products index. Names get
// an edge n-gram subfield so partial words still match.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":           { "type": "keyword" },
      "name":         { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":  { "type": "text" },
      "gender":       { "type": "keyword" },
      "category":     { "type": "keyword" },
      "sub_category": { "type": "keyword" },
      "price":        { "type": "long" },
      "is_featured":  { "type": "boolean" },
      "ratings":      { "type": "float" },
      "cover_image":  { "type": "keyword", "index": false },
      "created_at":   { "type": "date" }
    }
  }
}`
