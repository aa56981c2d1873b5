package testutil

// Flowsheet is a small attribute tree in the fixture format: two databank
// components, one heater block and one material stream.
const Flowsheet = `
Data:
  Components:
    Specifications:
      Input:
        ANAME:
          WATER: H2O
          ETHANOL: C2H5OH
        CASN:
          WATER: 7732-18-5
        DBNAME:
          WATER: WATER
          ETHANOL: C2H6O-2
  Blocks:
    H1:
      "@type": Heater
      Input:
        SPEC_OPT: TP
        TEMP: {"@value": 350, "@unit": C}
        PRES: {"@value": 2, "@unit": bar}
  Streams:
    S1:
      "@type": MATERIAL
`

// Plant is a fuller tree laid out the way the engine presents it: coefficient
// rows enumerated as "<cid> MIXED", block ports with the derived connection
// view next to them, one stream per MIXED_SPEC kind, a power-law reaction, a
// RadFrac column and a custom component with no databank name.
const Plant = `
Data:
  Components:
    Specifications:
      Input:
        ANAME:
          WATER: WATER
          ETHYLENE: C2H4
          ETHANOL: C2H6O-2
          MYCOMP: MYCOMP
        CASN:
          WATER: 7732-18-5
        DBNAME:
          WATER: WATER
          ETHYLENE: C2H4
          ETHANOL: C2H6O-2
  Properties:
    Property Methods:
      NRTL: ""
      PENG-ROB: ""
    Specifications:
      Input:
        GBASEOPSET: NRTL
        GOPSETNAME: NRTL
        GPPROCTYPE: ALL
  Reactions:
    Reactions:
      R1:
        "@type": POWERLAW
        Input:
          REACTYPE:
            "1": KINETIC
          COEF:
            "1":
              "WATER MIXED": -1
              WATER:
                MIXED: -1
              "ETHYLENE MIXED": -1
              ETHYLENE:
                MIXED: -1
              "MYCOMP MIXED": -3
              MYCOMP:
                MIXED: -3
          COEF1:
            "1":
              "ETHANOL MIXED": 1
              ETHANOL:
                MIXED: 1
          PRE_EXP:
            "1": 1000
  Convergence:
    Conv-Options:
      Input:
        TOL: 0.0001
        TEAR_METHOD: BROYDEN
        WEG_MAXIT: 50
        BR_MAXIT: 40
  Blocks:
    C1:
      "@type": RadFrac
      Ports:
        F(IN):
          S1: ""
        VD(OUT):
          D1: ""
        B(OUT):
          B1: ""
      Connections:
        S1: F(IN)
        D1: VD(OUT)
        B1: B(OUT)
      Input:
        NSTAGE: 10
        CONDENSER: TOTAL
        REBOILER: KETTLE
        BASIS_RR: 1.5
        "D:F": 0.5
        FEED_STAGE:
          S1: 5
        PROD_STAGE:
          D1: 1
          B1: 10
        VIEW_PRES: TOP/BOTTOM
        PRES1: {"@value": 1.2, "@unit": bar}
  Streams:
    S1:
      "@type": MATERIAL
      Input:
        MIXED_SPEC:
          MIXED: TP
        TEMP:
          MIXED: {"@value": 25, "@unit": C}
        PRES:
          MIXED: {"@value": 1, "@unit": bar}
        FLOW:
          MIXED:
            WATER: {"@value": 10, "@unit": kmol/hr}
            ETHYLENE: {"@value": 5, "@unit": kmol/hr}
    S2:
      "@type": MATERIAL
      Input:
        MIXED_SPEC:
          MIXED: TV
        TEMP:
          MIXED: {"@value": 80, "@unit": C}
        VFRAC:
          MIXED: 1
    S3:
      "@type": MATERIAL
      Input:
        MIXED_SPEC:
          MIXED: PV
        PRES:
          MIXED: {"@value": 2, "@unit": bar}
        VFRAC:
          MIXED: 0
    D1:
      "@type": MATERIAL
    B1:
      "@type": MATERIAL
`
