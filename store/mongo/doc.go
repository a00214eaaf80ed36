// Package mongo implements store.Backend on MongoDB with the
// transactional claiming strategy: a claim is one FindOneAndUpdate whose
// filter only matches an unleased document, so the server's atomic
// update decides the winner. Result retention is delegated to a TTL
// index on the results collection.
//
// Times are stored as BSON dates, which truncate to millisecond
// precision.
package mongo
