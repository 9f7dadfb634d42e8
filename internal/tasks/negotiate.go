package tasks

import (
	"mime"
	"strings"
)

// DecoderFor picks the codec for a request body from its declared
// Content-Type. XML and CBOR must be declared exactly; JSON is recognised
// by media type, so charset parameters and +json types are accepted.
// Any other type has no decoder and the payload counts as absent.
func DecoderFor(contentType string) (Codec, bool) {
	switch contentType {
	case mediaXML:
		return CodecFor(FormatXML)
	case mediaCBOR:
		return CodecFor(FormatCBOR)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}
	if mediaType == mediaJSON || (strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")) {
		return CodecFor(FormatJSON)
	}

	return nil, false
}

// EncoderFor picks the codec for a response from the Accept header. The
// check is a plain substring match, XML winning over CBOR, and JSON is the
// default.
func EncoderFor(accept string) Codec {
	var c Codec
	switch {
	case strings.Contains(accept, mediaXML):
		c, _ = CodecFor(FormatXML)
	case strings.Contains(accept, mediaCBOR):
		c, _ = CodecFor(FormatCBOR)
	default:
		c, _ = CodecFor(FormatJSON)
	}
	return c
}
