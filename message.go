package main

const (
	MsgInvalidRequest = "Request must carry an image in the multipart field \"file\", as base64 in a JSON \"image\" field, or as the raw body."

	MsgRequestTooLarge = "The uploaded image exceeds the maximum allowed size."

	MsgInvalidImage = "The uploaded file could not be decoded as an image."

	MsgUnavailable = "All detection workers are busy. Please retry shortly."

	MsgInferenceFailed = "Face detection failed while running the model."
)
