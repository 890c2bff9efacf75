// Package smb2 carries the MS-SMB2 / MS-FSCC wire constants and codecs.
// It is deliberately bytewise: every message type exposes Size()/Encode()
// (outgoing) or a *Decoder view over the raw bytes (incoming), following
// the position-marker back-patch pattern described in the teacher this
// module is adapted from.
package smb2

// Protocol ids (first four bytes of every SMB2-family header variant).
const (
	ProtocolPlain      = "\xfeSMB"
	ProtocolCompressed = "\xfcSMB"
	ProtocolEncrypted  = "\xfdSMB"
	ProtocolSMB1       = "\xffSMB"
)

// Command opcodes (MS-SMB2 2.2.1.1).
const (
	SMB2_NEGOTIATE = iota
	SMB2_SESSION_SETUP
	SMB2_LOGOFF
	SMB2_TREE_CONNECT
	SMB2_TREE_DISCONNECT
	SMB2_CREATE
	SMB2_CLOSE
	SMB2_FLUSH
	SMB2_READ
	SMB2_WRITE
	SMB2_LOCK
	SMB2_IOCTL
	SMB2_CANCEL
	SMB2_ECHO
	SMB2_QUERY_DIRECTORY
	SMB2_CHANGE_NOTIFY
	SMB2_QUERY_INFO
	SMB2_SET_INFO
	SMB2_OPLOCK_BREAK
)

// Header flags.
const (
	SMB2_FLAGS_SERVER_TO_REDIR = 1 << iota
	SMB2_FLAGS_ASYNC_COMMAND
	SMB2_FLAGS_RELATED_OPERATIONS
	SMB2_FLAGS_SIGNED

	SMB2_FLAGS_PRIORITY_MASK     = 0x70
	SMB2_FLAGS_DFS_OPERATIONS    = 0x10000000
	SMB2_FLAGS_REPLAY_OPERATIONS = 0x20000000
)

// CancelMessageId is the reserved pseudo message id used for explicit
// SMB2_CANCEL requests and for messages that must never be signed (e.g.
// echo keepalives on some dialects).
const CancelMessageId uint64 = 0xFFFFFFFFFFFFFFFF

// AsyncNotifyMessageId marks a server-initiated notification (oplock
// break, lease break, session-closed) that carries no matching waiter.
const AsyncNotifyMessageId uint64 = 0xFFFFFFFFFFFFFFFF

// Dialects, in client preference order (highest first is not implied;
// callers list clientDialects descending as spec.md §4.4 specifies).
const (
	UnknownSMB = 0x0
	SMB2Wild   = 0x2FF
	SMB202     = 0x202
	SMB210     = 0x210
	SMB300     = 0x300
	SMB302     = 0x302
	SMB311     = 0x311
)

// Negotiate SecurityMode.
const (
	SMB2_NEGOTIATE_SIGNING_ENABLED = 1 << iota
	SMB2_NEGOTIATE_SIGNING_REQUIRED
)

// Global capabilities.
const (
	SMB2_GLOBAL_CAP_DFS = 1 << iota
	SMB2_GLOBAL_CAP_LEASING
	SMB2_GLOBAL_CAP_LARGE_MTU
	SMB2_GLOBAL_CAP_MULTI_CHANNEL
	SMB2_GLOBAL_CAP_PERSISTENT_HANDLES
	SMB2_GLOBAL_CAP_DIRECTORY_LEASING
	SMB2_GLOBAL_CAP_ENCRYPTION
)

// Negotiate context types (SMB 3.1.1).
const (
	SMB2_PREAUTH_INTEGRITY_CAPABILITIES = 1
	SMB2_ENCRYPTION_CAPABILITIES        = 2
	SMB2_COMPRESSION_CAPABILITIES       = 3
	SMB2_NETNAME_NEGOTIATE_CONTEXT_ID   = 5
	SMB2_SIGNING_CAPABILITIES           = 8
)

// Preauth-integrity hash algorithms.
const SHA512 = 0x1

// Cipher ids.
const (
	AES128CCM = 0x1
	AES128GCM = 0x2
	AES256CCM = 0x3
	AES256GCM = 0x4
)

// Signing algorithm ids (SMB2_SIGNING_CAPABILITIES context).
const (
	SigningHmacSha256 = 0x0
	SigningAesCmac    = 0x1
	SigningAesGmac    = 0x2
)

// Compression algorithm ids.
const (
	CompressionNone           = 0x0
	CompressionLZNT1          = 0x1
	CompressionLZ77           = 0x2
	CompressionLZ77Huffman    = 0x3
	CompressionPatternV1      = 0x4
	CompressionLZ4            = 0x5
)

// Compression context flags.
const (
	CompressionCapsFlagNone    = 0x0
	CompressionCapsFlagChained = 0x1
)

// Transform header flags (SMB2_TRANSFORM_HEADER, from SMB3).
const TransformFlagEncrypted = 0x0001

// Session setup flags.
const SMB2_SESSION_FLAG_BINDING = 0x1

// Session flags (response).
const (
	SMB2_SESSION_FLAG_IS_GUEST = 1 << iota
	SMB2_SESSION_FLAG_IS_NULL
	SMB2_SESSION_FLAG_ENCRYPT_DATA
)

// Tree connect share types.
const (
	SMB2_SHARE_TYPE_DISK = 1 + iota
	SMB2_SHARE_TYPE_PIPE
	SMB2_SHARE_TYPE_PRINT
)

// Share flags.
const (
	SMB2_SHAREFLAG_MANUAL_CACHING              = 0x0
	SMB2_SHAREFLAG_AUTO_CACHING                = 0x10
	SMB2_SHAREFLAG_VDO_CACHING                 = 0x20
	SMB2_SHAREFLAG_NO_CACHING                  = 0x30
	SMB2_SHAREFLAG_DFS                         = 0x1
	SMB2_SHAREFLAG_DFS_ROOT                    = 0x2
	SMB2_SHAREFLAG_RESTRICT_EXCLUSIVE_OPENS    = 0x100
	SMB2_SHAREFLAG_FORCE_SHARED_DELETE         = 0x200
	SMB2_SHAREFLAG_ALLOW_NAMESPACE_CACHING     = 0x400
	SMB2_SHAREFLAG_ACCESS_BASED_DIRECTORY_ENUM = 0x800
	SMB2_SHAREFLAG_FORCE_LEVELII_OPLOCK        = 0x1000
	SMB2_SHAREFLAG_ENABLE_HASH_V1              = 0x2000
	SMB2_SHAREFLAG_ENABLE_HASH_V2              = 0x4000
	SMB2_SHAREFLAG_ENCRYPT_DATA                = 0x8000
)

// Tree connect / share capabilities.
const (
	SMB2_SHARE_CAP_DFS = 0x8 << iota
	SMB2_SHARE_CAP_CONTINUOUS_AVAILABILITY
	SMB2_SHARE_CAP_SCALEOUT
	SMB2_SHARE_CAP_CLUSTER
	SMB2_SHARE_CAP_ASYMMETRIC
)

// Create: oplock levels.
const (
	SMB2_OPLOCK_LEVEL_NONE      = 0x0
	SMB2_OPLOCK_LEVEL_II        = 0x1
	SMB2_OPLOCK_LEVEL_EXCLUSIVE = 0x8
	SMB2_OPLOCK_LEVEL_BATCH     = 0x9
	SMB2_OPLOCK_LEVEL_LEASE     = 0xff
)

// Create: impersonation levels.
const (
	ImpersonationAnonymous = iota
	ImpersonationIdentification
	ImpersonationImpersonation
	ImpersonationDelegate
)

// Create: desired access (file/pipe/printer + directory + common bits).
const (
	FILE_READ_DATA = 1 << iota
	FILE_WRITE_DATA
	FILE_APPEND_DATA
	FILE_READ_EA
	FILE_WRITE_EA
	FILE_EXECUTE
	FILE_DELETE_CHILD
	FILE_READ_ATTRIBUTES
	FILE_WRITE_ATTRIBUTES

	FILE_LIST_DIRECTORY = 1 << iota
	FILE_ADD_FILE
	FILE_ADD_SUBDIRECTORY
	_
	_
	FILE_TRAVERSE
	_
	_
	_

	DELETE                 = 0x10000
	READ_CONTROL           = 0x20000
	WRITE_DAC              = 0x40000
	WRITE_OWNER            = 0x80000
	SYNCHRONIZE            = 0x100000
	ACCESS_SYSTEM_SECURITY = 0x1000000
	MAXIMUM_ALLOWED        = 0x2000000
	GENERIC_ALL            = 0x10000000
	GENERIC_EXECUTE        = 0x20000000
	GENERIC_WRITE          = 0x40000000
	GENERIC_READ           = 0x80000000
)

// File attributes (MS-FSCC 2.6).
const (
	FILE_ATTRIBUTE_READONLY            = 0x1
	FILE_ATTRIBUTE_HIDDEN              = 0x2
	FILE_ATTRIBUTE_SYSTEM              = 0x4
	FILE_ATTRIBUTE_DIRECTORY           = 0x10
	FILE_ATTRIBUTE_ARCHIVE             = 0x20
	FILE_ATTRIBUTE_NORMAL              = 0x80
	FILE_ATTRIBUTE_TEMPORARY           = 0x100
	FILE_ATTRIBUTE_SPARSE_FILE         = 0x200
	FILE_ATTRIBUTE_REPARSE_POINT       = 0x400
	FILE_ATTRIBUTE_COMPRESSED          = 0x800
	FILE_ATTRIBUTE_OFFLINE             = 0x1000
	FILE_ATTRIBUTE_NOT_CONTENT_INDEXED = 0x2000
	FILE_ATTRIBUTE_ENCRYPTED           = 0x4000
)

// Share access.
const (
	FILE_SHARE_READ = 1 << iota
	FILE_SHARE_WRITE
	FILE_SHARE_DELETE
)

// Create disposition.
const (
	FILE_SUPERSEDE = iota
	FILE_OPEN
	FILE_CREATE
	FILE_OPEN_IF
	FILE_OVERWRITE
	FILE_OVERWRITE_IF
)

// Create options (subset the core inspects).
const (
	FILE_DIRECTORY_FILE     = 0x1
	FILE_NON_DIRECTORY_FILE = 0x40
	FILE_DELETE_ON_CLOSE    = 0x1000
)

// Create context names (MS-SMB2 2.2.13.2).
const (
	CreateContextDHnQ = "DHnQ" // durable handle request v1
	CreateContextDHnC = "DHnC" // durable handle reconnect v1
	CreateContextDH2Q = "DH2Q" // durable handle request v2
	CreateContextDH2C = "DH2C" // durable handle reconnect v2
	CreateContextMxAc = "MxAc" // maximal access request
	CreateContextQFid = "QFid" // query on-disk id
	CreateContextRqLs = "RqLs" // lease request
	CreateContextExtA = "ExtA" // extended attributes
)

// Close flags.
const SMB2_CLOSE_FLAG_POSTQUERY_ATTRIB = 0x1

// Read/Write channel.
const (
	SMB2_CHANNEL_NONE = iota
	SMB2_CHANNEL_RDMA_V1
	SMB2_CHANNEL_RDMA_V1_INVALIDATE
)

// Write flags.
const (
	SMB2_WRITEFLAG_WRITE_THROUGH = 1 << iota
	SMB2_WRITEFLAG_WRITE_UNBUFFERED
)

// QueryDirectory flags.
const (
	RESTART_SCANS = 1 << iota
	RETURN_SINGLE_ENTRY
	INDEX_SPECIFIED
	_
	REOPEN
)

// FileInformationClass values the directory iterator understands.
const (
	FileDirectoryInformation       = 0x1
	FileFullDirectoryInformation   = 0x2
	FileBothDirectoryInformation   = 0x3
	FileIdBothDirectoryInformation = 0x25
	FileIdFullDirectoryInformation = 0x26
	FileNamesInformation           = 0xc
)

// QUERY_INFO InfoType.
const (
	INFO_FILE = 1 + iota
	INFO_FILESYSTEM
	INFO_SECURITY
	INFO_QUOTA
)

// IOCTL flags.
const SMB2_0_IOCTL_IS_FSCTL = 0x1

// FSCTL codes the core issues directly (MS-FSCC 2.3).
const (
	FSCTL_DFS_GET_REFERRALS            = 0x00060194
	FSCTL_PIPE_PEEK                    = 0x0011400C
	FSCTL_PIPE_WAIT                    = 0x00110018
	FSCTL_PIPE_TRANSCEIVE              = 0x0011C017
	FSCTL_SRV_REQUEST_RESUME_KEY       = 0x00140078
	FSCTL_LMR_REQUEST_RESILIENCY       = 0x001401D4
	FSCTL_QUERY_NETWORK_INTERFACE_INFO = 0x001401FC
	FSCTL_VALIDATE_NEGOTIATE_INFO      = 0x00140204
	FSCTL_DFS_GET_REFERRALS_EX         = 0x000601B0
)

// Wildcard FileId, used for FSCTLs that do not target a specific handle.
var WildcardFileId = [2]uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF}

// EmptyFileId means "no file".
var EmptyFileId = [2]uint64{0, 0}
