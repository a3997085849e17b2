package cpufeatures

// Family is the coarse instruction-set classification of the running
// process.  A 32-bit ARM binary on an ARMv8 kernel reports FamilyARM.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyARM
	FamilyX86
	FamilyMIPS
	FamilyARM64
	FamilyX86_64
	FamilyMIPS64
	FamilyRISCV64
)

var familyNames = map[Family]string{
	FamilyUnknown: "unknown",
	FamilyARM:     "arm",
	FamilyX86:     "x86",
	FamilyMIPS:    "mips",
	FamilyARM64:   "arm64",
	FamilyX86_64:  "x86_64",
	FamilyMIPS64:  "mips64",
	FamilyRISCV64: "riscv64",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return familyNames[FamilyUnknown]
}

// FamilyFromGOARCH maps a Go architecture name to a Family.
func FamilyFromGOARCH(goarch string) Family {
	switch goarch {
	case "arm":
		return FamilyARM
	case "arm64":
		return FamilyARM64
	case "386":
		return FamilyX86
	case "amd64":
		return FamilyX86_64
	case "mips", "mipsle":
		return FamilyMIPS
	case "mips64", "mips64le":
		return FamilyMIPS64
	case "riscv64":
		return FamilyRISCV64
	default:
		return FamilyUnknown
	}
}
