// Package protocol implements the stormplug wire format: one JSON object
// per newline-delimited line.
//
// Plugin to host:
//
//	{"type":"hello","name":"wordcount","version":"0.1.0","proto":1}
//	{"type":"register","kind":"command","name":"Shout","sync":false,"opts":{...}}
//	{"type":"response","id":7,"result":84}
//	{"type":"response","id":8,"error":"boom"}
//	{"type":"notify","method":"echo","args":["hi"]}
//
// Host to plugin:
//
//	{"type":"invoke","kind":"command","name":"Shout","args":["x"],"range":[1,3]}
//	{"type":"invoke","kind":"function","name":"Double","id":7,"args":["42"]}
//	{"type":"invoke","kind":"autocmd","name":"buffer.saved","file":"a.txt"}
//
// An invoke carrying an id is blocking: the host holds the invocation
// open until the matching response arrives. Responses are error-first: an
// "error" field and a "result" field never appear together.
package protocol
