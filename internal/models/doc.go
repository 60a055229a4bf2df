// Package models holds the storage-independent record types: a Message, the
// FileReferences attached to it and its MessageStatus. Values are plain data
// owned by the caller; persistence lives in docstore and relstore.
package models
