package format

import "fmt"

// Category is the HAP accessory-category identifier advertised in DNS-SD
// and returned as the root accessory's forwarded bridge category.
type Category uint16

const (
	CategoryOther              Category = 1
	CategoryBridge             Category = 2
	CategoryFan                Category = 3
	CategoryGarageDoorOpener   Category = 4
	CategoryLightbulb          Category = 5
	CategoryDoorLock           Category = 6
	CategoryOutlet             Category = 7
	CategorySwitch             Category = 8
	CategoryThermostat         Category = 9
	CategorySensor             Category = 10
	CategorySecuritySystem     Category = 11
	CategoryDoor               Category = 12
	CategoryWindow             Category = 13
	CategoryWindowCovering     Category = 14
	CategoryProgrammableSwitch Category = 15
	CategoryIPCamera           Category = 17
	CategoryAirPurifier        Category = 19
	CategoryAirConditioner     Category = 21
	CategorySpeaker            Category = 26
)

var categoryNames = map[Category]string{
	CategoryOther:              "other",
	CategoryBridge:             "bridge",
	CategoryFan:                "fan",
	CategoryGarageDoorOpener:   "garage-door-opener",
	CategoryLightbulb:          "lightbulb",
	CategoryDoorLock:           "door-lock",
	CategoryOutlet:             "outlet",
	CategorySwitch:             "switch",
	CategoryThermostat:         "thermostat",
	CategorySensor:             "sensor",
	CategorySecuritySystem:     "security-system",
	CategoryDoor:               "door",
	CategoryWindow:             "window",
	CategoryWindowCovering:     "window-covering",
	CategoryProgrammableSwitch: "programmable-switch",
	CategoryIPCamera:           "ip-camera",
	CategoryAirPurifier:        "air-purifier",
	CategoryAirConditioner:     "air-conditioner",
	CategorySpeaker:            "speaker",
}

// String returns the lower-kebab-case category name, or a numeric fallback
// for an unrecognized value.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint16(c))
}
