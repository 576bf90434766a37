package codec

import "time"

// Capacity and layout constants shared by every component that hashes or
// validates records.
const (
	NumberOfBlobs        = 10  // Fixed blob capacity of a main block.
	NumberOfTransactions = 300 // Fixed transaction capacity of a typed batch.
	BigPaddingCoeff      = 5   // Blob slots covered by one big padding record.
	SmallPaddingCoeff    = 20  // Transaction slots covered by one small padding record.

	HashLength          = 32
	AddressLength       = 20
	DifficultySize      = 8
	LimitSize           = 32
	IndexLength         = 1
	HashLengthWithIndex = HashLength + IndexLength
)

// Timing constants.
const (
	ExpectedBlockTime = 60 * time.Second // Target interval between main blocks.
	GiveUpHashing     = 60 * time.Second // Deadline callers apply to a mining session.
	ResponseTimeout   = 30 * time.Second // Deadline for request by hash.
)

// Messaging topics.
const (
	TopicQueryTransaction   = "QUERY_TRANSACTION"
	TopicQueriesTransaction = "QUERIES_TRANSACTION"
	TopicSendMessage        = "SEND_MESSAGE"
	TopicUpdateMain         = "UPDATE_MAIN"
)

// Topics lists every topic a node subscribes to.
var Topics = []string{TopicQueryTransaction, TopicQueriesTransaction, TopicSendMessage, TopicUpdateMain}
