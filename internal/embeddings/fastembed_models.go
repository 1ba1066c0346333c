package embeddings

// Local ONNX models FastEmbed can run. Keys are the Hugging Face names;
// the fast-* names the fastembed library uses are accepted as aliases.
var fastEmbedDims = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

var fastEmbedAliases = map[string]string{
	"fast-bge-small-en-v1.5": "BAAI/bge-small-en-v1.5",
	"fast-bge-small-en":      "BAAI/bge-small-en",
	"fast-bge-base-en-v1.5":  "BAAI/bge-base-en-v1.5",
	"fast-bge-base-en":       "BAAI/bge-base-en",
	"fast-bge-small-zh-v1.5": "BAAI/bge-small-zh-v1.5",
	"fast-all-MiniLM-L6-v2":  "sentence-transformers/all-MiniLM-L6-v2",
}

const defaultFastEmbedModel = "BAAI/bge-small-en-v1.5"

// canonicalFastEmbedModel resolves an alias to its Hugging Face name.
func canonicalFastEmbedModel(name string) (string, bool) {
	if canon, ok := fastEmbedAliases[name]; ok {
		name = canon
	}
	_, ok := fastEmbedDims[name]
	return name, ok
}

// fastEmbedModelDimension returns the output size of a known model.
func fastEmbedModelDimension(name string) (int, bool) {
	canon, ok := canonicalFastEmbedModel(name)
	if !ok {
		return 0, false
	}
	return fastEmbedDims[canon], true
}
