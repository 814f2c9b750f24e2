package protocol

import "fmt"

// Enum-to-name tables. Firmware releases add enum values faster than
// clients learn them, so every table is total: unknown codes render as
// UNKNOWN(code) instead of failing.

func unknownCode(code uint32) string {
	return fmt.Sprintf("UNKNOWN(%d)", code)
}

func lookup(names []string, code uint32) string {
	if int(code) < len(names) {
		return names[code]
	}

	return unknownCode(code)
}

var deviceRoleNames = []string{
	"CLIENT", "CLIENT_MUTE", "ROUTER", "ROUTER_CLIENT", "REPEATER",
	"TRACKER", "SENSOR", "TAK", "CLIENT_HIDDEN", "LOST_AND_FOUND",
	"TAK_TRACKER", "ROUTER_LATE",
}

func DeviceRoleName(code uint32) string { return lookup(deviceRoleNames, code) }

var rebroadcastModeNames = []string{
	"ALL", "ALL_SKIP_DECODING", "LOCAL_ONLY", "KNOWN_ONLY", "NONE",
	"CORE_PORTNUMS_ONLY",
}

func RebroadcastModeName(code uint32) string { return lookup(rebroadcastModeNames, code) }

var regionNames = []string{
	"UNSET", "US", "EU_433", "EU_868", "CN", "JP", "ANZ", "KR", "TW",
	"RU", "IN", "NZ_865", "TH", "LORA_24", "UA_433", "UA_868", "MY_433",
	"MY_919", "SG_923",
}

func RegionName(code uint32) string { return lookup(regionNames, code) }

var modemPresetNames = []string{
	"LONG_FAST", "LONG_SLOW", "VERY_LONG_SLOW", "MEDIUM_SLOW",
	"MEDIUM_FAST", "SHORT_SLOW", "SHORT_FAST", "LONG_MODERATE",
	"SHORT_TURBO",
}

func ModemPresetName(code uint32) string { return lookup(modemPresetNames, code) }

var gpsFormatNames = []string{"DEC", "DMS", "UTM", "MGRS", "OLC", "OSGR"}

func GpsFormatName(code uint32) string { return lookup(gpsFormatNames, code) }

var displayUnitsNames = []string{"METRIC", "IMPERIAL"}

func DisplayUnitsName(code uint32) string { return lookup(displayUnitsNames, code) }

var oledTypeNames = []string{"OLED_AUTO", "OLED_SSD1306", "OLED_SH1106", "OLED_SH1107"}

func OledTypeName(code uint32) string { return lookup(oledTypeNames, code) }

var bluetoothModeNames = []string{"RANDOM_PIN", "FIXED_PIN", "NO_PIN"}

func BluetoothModeName(code uint32) string { return lookup(bluetoothModeNames, code) }

// Hardware models are sparse, so a map instead of a dense table.
var hardwareModelNames = map[uint32]string{
	0:   "UNSET",
	1:   "TLORA_V2",
	2:   "TLORA_V1",
	3:   "TLORA_V2_1_1P6",
	4:   "TBEAM",
	5:   "HELTEC_V2_0",
	6:   "TBEAM_V0P7",
	7:   "T_ECHO",
	8:   "TLORA_V1_1P3",
	9:   "RAK4631",
	10:  "HELTEC_V2_1",
	11:  "HELTEC_V1",
	12:  "LILYGO_TBEAM_S3_CORE",
	13:  "RAK11200",
	14:  "NANO_G1",
	15:  "TLORA_V2_1_1P8",
	16:  "TLORA_T3_S3",
	17:  "NANO_G1_EXPLORER",
	18:  "NANO_G2_ULTRA",
	25:  "STATION_G1",
	26:  "RAK11310",
	29:  "CANARYONE",
	31:  "LORA_TYPE",
	39:  "DIY_V1",
	41:  "DR_DEV",
	42:  "M5STACK",
	43:  "HELTEC_V3",
	44:  "HELTEC_WSL_V3",
	47:  "RPI_PICO",
	48:  "HELTEC_WIRELESS_TRACKER",
	49:  "HELTEC_WIRELESS_PAPER",
	50:  "T_DECK",
	51:  "T_WATCH_S3",
	52:  "PICOMPUTER_S3",
	53:  "HELTEC_HT62",
	57:  "HELTEC_WIRELESS_PAPER_V1_0",
	58:  "HELTEC_WIRELESS_TRACKER_V1_0",
	64:  "STATION_G2",
	71:  "T_ECHO_LITE",
	255: "PRIVATE_HW",
}

func HardwareModelName(code uint32) string {
	if name, ok := hardwareModelNames[code]; ok {
		return name
	}

	return unknownCode(code)
}

// RoutingErrorName names ACK/NACK outcomes for logs and failure reasons.
func RoutingErrorName(e RoutingError) string {
	switch e {
	case RoutingNone:
		return "NONE"
	case RoutingNoRoute:
		return "NO_ROUTE"
	case RoutingGotNak:
		return "GOT_NAK"
	case RoutingTimeout:
		return "TIMEOUT"
	case RoutingNoInterface:
		return "NO_INTERFACE"
	case RoutingMaxRetransmit:
		return "MAX_RETRANSMIT"
	case RoutingNoChannel:
		return "NO_CHANNEL"
	case RoutingTooLarge:
		return "TOO_LARGE"
	case RoutingNoResponse:
		return "NO_RESPONSE"
	default:
		return unknownCode(uint32(e))
	}
}
