/*
Package api exposes phantom over HTTP.

Routes:

	GET  /game-data/   compressed snapshot (Content-Encoding: gzip|zstd|x-snappy-framed, X-Cache: HIT|MISS)
	POST /game-data/   one ingestion payload, 201 {"status":"created"}
	GET  /health       {"status":"healthy"} once startup reconciliation ran
	GET  /metrics      Prometheus exposition of the process metrics

Write errors:

	400  body is not valid JSON
	413  body too large
	422  {"detail":[{"loc":["body","object","position"],"msg":"..."}]}
	500  the record store failed
*/
package api
