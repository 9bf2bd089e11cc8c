package wire

// Opcode identifies the NetBIOS name service operation carried by a
// packet's header, taken from the 4-bit OPCODE field of FLAGS.
type Opcode uint8

const (
	OpQuery                  Opcode = 0
	OpRegistration           Opcode = 5
	OpRelease                Opcode = 6
	OpWACK                   Opcode = 7
	OpRefresh                Opcode = 8
	OpMultiHomedRegistration Opcode = 15
)

func (o Opcode) String() string {
	switch o {
	case OpQuery:
		return "Query"
	case OpRegistration:
		return "Registration"
	case OpRelease:
		return "Release"
	case OpWACK:
		return "WACK"
	case OpRefresh:
		return "Refresh"
	case OpMultiHomedRegistration:
		return "MultiHomedRegistration"
	default:
		return "Unknown"
	}
}

// Resource record types used by the name service.
const (
	RRTypeNB     uint16 = 0x0020
	RRTypeNBSTAT uint16 = 0x0021
)

// RRClassIN is the only resource record class the name service uses.
const RRClassIN uint16 = 0x0001

// NB record flags (ONT/G bits), packed little-endian in RDATA per the
// source's reuse of its "Intel" helpers.
const (
	NBFlagGroup       uint16 = 0x8000
	NBFlagOwnerUnique uint16 = 0x0000
	NBFlagOwnerBNode  uint16 = 0x0000
	NBFlagOwnerPNode  uint16 = 0x2000
	NBFlagOwnerMNode  uint16 = 0x4000
)

// NodeNameFlags bits for an NBSTAT entry: the group flag plus the
// conflict, active and permanent bits, in the NB record's ONT/G layout.
// No constant is defined for the deregister bit.
const (
	NameFlagGroup     uint16 = 0x8000
	NameFlagConflict  uint16 = 0x0800
	NameFlagActive    uint16 = 0x0400
	NameFlagPermanent uint16 = 0x0200
)
