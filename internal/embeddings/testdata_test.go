package embeddings

// Minimal headers that http.DetectContentType recognises.
var (
	fakePNG  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-first-image")
	fakePNG2 = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-second-image")
	fakeJPEG = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)
