package mm

const (
	// PointerShift is equal to log2 of the machine word size.
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = 1 << PageShift

	// PAWidth is the number of physical address bits supported by Sv39.
	PAWidth = 56

	// VAWidth is the number of significant virtual address bits in Sv39.
	VAWidth = 39

	// PPNWidth and VPNWidth are the widths of the page number fields.
	PPNWidth = PAWidth - PageShift
	VPNWidth = VAWidth - PageShift

	// PageLevels is the depth of an Sv39 page table.
	PageLevels = 3

	// PageLevelBits is the number of VPN bits consumed by each level.
	PageLevelBits = 9

	// EntriesPerTable is the number of entries in each page table.
	EntriesPerTable = 1 << PageLevelBits
)
